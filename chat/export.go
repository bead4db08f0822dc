package chat

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/kaleow/omnichat/store"
)

var exportMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
)

// ExportMarkdown renders a conversation transcript as a markdown document.
// Image messages are rendered as image links.
func ExportMarkdown(conv *store.Conversation, messages []*store.Message) string {
	var sb strings.Builder
	title := conv.Title
	if title == "" {
		title = "Conversation"
	}
	sb.WriteString("# " + title + "\n\n")
	sb.WriteString(fmt.Sprintf("_Exported %s_\n\n", time.Now().Format("2006-01-02 15:04")))

	for _, m := range messages {
		label := "Assistant"
		if m.Role == "user" {
			label = "You"
		} else if m.Model != "" {
			label = "Assistant (" + m.Model + ")"
		}
		sb.WriteString("## " + label + "\n\n")
		if m.Type == store.MessageTypeImage && m.ImageURL != "" {
			sb.WriteString(fmt.Sprintf("![%s](%s)\n\n", m.Content, m.ImageURL))
			continue
		}
		sb.WriteString(m.Content + "\n\n")
	}
	return sb.String()
}

// ExportHTML renders the markdown export as a standalone HTML page.
func ExportHTML(conv *store.Conversation, messages []*store.Message) (string, error) {
	var body bytes.Buffer
	if err := exportMarkdown.Convert([]byte(ExportMarkdown(conv, messages)), &body); err != nil {
		return "", errors.Wrap(err, "failed to render transcript")
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>" + htmlEscape(conv.Title) + "</title>\n")
	sb.WriteString("<style>body{max-width:48rem;margin:2rem auto;font-family:sans-serif;line-height:1.5;padding:0 1rem}</style>\n")
	sb.WriteString("</head>\n<body>\n")
	sb.Write(body.Bytes())
	sb.WriteString("</body>\n</html>\n")
	return sb.String(), nil
}

func htmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return replacer.Replace(s)
}
