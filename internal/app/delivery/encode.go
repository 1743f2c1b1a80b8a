package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"client/internal/app/capture"
)

type payload struct {
	contentType string
	body        []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encode serializes a bundle: TextOnly as JSON, WithAttachments as multipart
// with parts text, image and audio.
func encode(b capture.Bundle) (payload, error) {
	switch v := b.(type) {
	case capture.TextOnly:
		body, err := json.Marshal(map[string]string{"text": v.Text})
		if err != nil {
			return payload{}, fmt.Errorf("failed to encode text: %w", err)
		}
		return payload{contentType: "application/json", body: body}, nil

	case capture.WithAttachments:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if v.Text != "" {
			if err := w.WriteField("text", v.Text); err != nil {
				return payload{}, fmt.Errorf("failed to write text part: %w", err)
			}
		}
		for _, part := range []struct {
			field string
			blob  *capture.Blob
		}{{"image", v.Image}, {"audio", v.Audio}} {
			if part.blob == nil {
				continue
			}
			if err := writeBlob(w, part.field, part.blob); err != nil {
				return payload{}, err
			}
		}
		if err := w.Close(); err != nil {
			return payload{}, fmt.Errorf("failed to close multipart body: %w", err)
		}
		return payload{contentType: w.FormDataContentType(), body: buf.Bytes()}, nil
	}
	return payload{}, fmt.Errorf("failed to encode bundle: unknown type %T", b)
}

func writeBlob(w *multipart.Writer, field string, blob *capture.Blob) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(blob.Name)))
	h.Set("Content-Type", blob.ContentType)

	pw, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", field, err)
	}
	if _, err := pw.Write(blob.Data); err != nil {
		return fmt.Errorf("failed to write %s part: %w", field, err)
	}
	return nil
}
