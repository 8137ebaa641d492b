package ingest

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"

	"lpoflow/internal"
	"lpoflow/internal/util"
)

const bodyPreviewLen = 500

// ParseRawMessage turns a fetched raw message into the structure the
// ingestion filter evaluates. Attachments are persisted under dir so
// queue items can reference them after the mailbox connection is gone.
func ParseRawMessage(msg internal.FetchedMailMessage, dir string) (internal.InboundMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return internal.InboundMessage{}, fmt.Errorf("parse message: %w", err)
	}

	out := internal.InboundMessage{
		Provider:    msg.Provider,
		MessageID:   firstNonEmpty(env.GetHeader("Message-Id"), msg.MessageID),
		Subject:     firstNonEmpty(env.GetHeader("Subject"), msg.Subject),
		From:        firstNonEmpty(env.GetHeader("From"), msg.From),
		Date:        firstNonEmpty(env.GetHeader("Date"), msg.ReceivedAt),
		BodyText:    env.Text,
	}
	out.SenderEmail = extractAddress(out.From)
	if out.BodyText == "" && env.HTML != "" {
		out.BodyText = stripTags(env.HTML)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return internal.InboundMessage{}, err
	}

	for i, att := range env.Attachments {
		filename := sanitizeFilename(att.FileName)
		if filename == "" {
			filename = fmt.Sprintf("attachment-%d", i+1)
		}
		path := filepath.Join(dir, uniqueName(dir, filename))
		if err := os.WriteFile(path, att.Content, 0o644); err != nil {
			return internal.InboundMessage{}, fmt.Errorf("persist attachment %s: %w", filename, err)
		}
		out.Attachments = append(out.Attachments, internal.Attachment{
			Filename:    filename,
			Path:        path,
			ContentType: att.ContentType,
		})
	}

	// A message with an order in its body and no files still has to
	// flow through the same file-based pipeline.
	if len(out.Attachments) == 0 && strings.TrimSpace(out.BodyText) != "" {
		filename := sanitizeFilename(out.Subject)
		if filename == "" {
			filename = "message-body"
		}
		filename += ".txt"
		path := filepath.Join(dir, uniqueName(dir, filename))
		if err := os.WriteFile(path, []byte(out.BodyText), 0o644); err != nil {
			return internal.InboundMessage{}, fmt.Errorf("persist message body: %w", err)
		}
		out.Attachments = append(out.Attachments, internal.Attachment{
			Filename:    filename,
			Path:        path,
			ContentType: "text/plain",
		})
	}

	return out, nil
}

// MessageHash is the dedup identity of an inbound message: the mail
// Message-ID when present, otherwise a digest of the stable headers.
func MessageHash(msg internal.InboundMessage) string {
	source := strings.TrimSpace(msg.MessageID)
	if source == "" {
		source = msg.Subject + "|" + msg.Date + "|" + msg.SenderEmail
	}
	sum := md5.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}

// BodyPreview bounds the text used for intent classification.
func BodyPreview(body string) string {
	return util.Truncate(strings.TrimSpace(body), bodyPreviewLen)
}

func extractAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	if i, j := strings.Index(from, "<"), strings.Index(from, ">"); i >= 0 && j > i {
		return strings.ToLower(strings.TrimSpace(from[i+1 : j]))
	}
	return strings.ToLower(strings.TrimSpace(from))
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._\- ]+`)

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._ ")
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}

func uniqueName(dir, filename string) string {
	candidate := filename
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(html string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(html, " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
