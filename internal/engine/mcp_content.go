package engine

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ContentFile points at binary tool output saved to a temporary file.
type ContentFile struct {
	Type     string `json:"type"`
	MIMEType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
	Path     string `json:"path"`
}

// toolResultData converts a tool result into command data. Tool-level errors
// become Go errors carrying the tool's own message.
func toolResultData(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New("tool returned no result")
	}

	var parts []any
	for _, content := range result.Content {
		if part, ok := contentPart(content); ok {
			parts = append(parts, part)
		}
	}

	if result.IsError {
		var texts []string
		for _, p := range parts {
			if s, ok := p.(string); ok {
				texts = append(texts, s)
			}
		}
		if len(texts) == 0 {
			return nil, errors.New("tool reported an error")
		}
		return nil, errors.New(strings.Join(texts, "\n"))
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	default:
		return parts, nil
	}
}

func contentPart(content mcp.Content) (any, bool) {
	switch c := content.(type) {
	case mcp.TextContent:
		return c.Text, true
	case *mcp.TextContent:
		return c.Text, true
	case mcp.ImageContent:
		return savedBase64("image", c.MIMEType, "", c.Data)
	case *mcp.ImageContent:
		return savedBase64("image", c.MIMEType, "", c.Data)
	case mcp.AudioContent:
		return savedBase64("audio", c.MIMEType, "", c.Data)
	case *mcp.AudioContent:
		return savedBase64("audio", c.MIMEType, "", c.Data)
	case mcp.EmbeddedResource:
		return resourcePart(c.Resource)
	case *mcp.EmbeddedResource:
		return resourcePart(c.Resource)
	default:
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, false
		}
		return json.RawMessage(raw), true
	}
}

func resourcePart(resource mcp.ResourceContents) (any, bool) {
	switch r := resource.(type) {
	case mcp.TextResourceContents:
		return r.Text, true
	case *mcp.TextResourceContents:
		return r.Text, true
	case mcp.BlobResourceContents:
		return savedBase64("resource", r.MIMEType, r.URI, r.Blob)
	case *mcp.BlobResourceContents:
		return savedBase64("resource", r.MIMEType, r.URI, r.Blob)
	default:
		return nil, false
	}
}

func savedBase64(kind, mimeType, uri, encoded string) (any, bool) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	path, err := writeTempFile("easytouch-"+kind, mimeType, data)
	if err != nil {
		return nil, false
	}
	return ContentFile{Type: kind, MIMEType: mimeType, URI: uri, Path: path}, true
}

func writeTempFile(prefix, mimeType string, data []byte) (string, error) {
	f, err := os.CreateTemp("", prefix+"-*"+extForMIMEType(mimeType))
	if err != nil {
		return "", err
	}

	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func extForMIMEType(mimeType string) string {
	mimeType, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	mimeType = strings.TrimSpace(mimeType)
	switch {
	case mimeType == "":
		return ".bin"
	case mimeType == "image/png":
		return ".png"
	case mimeType == "image/jpeg":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	if strings.HasPrefix(mimeType, "text/") {
		return ".txt"
	}
	if strings.Contains(mimeType, "json") {
		return ".json"
	}
	return ".bin"
}
