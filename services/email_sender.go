package services

import (
	"encoding/base64"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhilgenberg/evsync/config"
)

// EmailSender delivers generated report PDFs by mail.
type EmailSender struct {
	cfg *config.Config
}

func NewEmailSender(cfg *config.Config) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// SendReport mails the PDF at reportPath to the recipient as an
// attachment.
func (es *EmailSender) SendReport(recipient, subject, body, reportPath string) error {
	if es.cfg.SMTPHost == "" {
		return fmt.Errorf("SMTP is not configured")
	}

	attachment, err := os.ReadFile(reportPath)
	if err != nil {
		return fmt.Errorf("failed to read report: %v", err)
	}

	boundary := "evsync-report-boundary"

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", es.cfg.SMTPFrom))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%s\r\n", boundary))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: application/pdf\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", filepath.Base(reportPath)))

	encoded := base64.StdEncoding.EncodeToString(attachment)
	// wrap base64 at 76 characters per RFC 2045
	for len(encoded) > 76 {
		msg.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	msg.WriteString(encoded + "\r\n")
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	addr := fmt.Sprintf("%s:%d", es.cfg.SMTPHost, es.cfg.SMTPPort)
	auth := smtp.PlainAuth("", es.cfg.SMTPUser, es.cfg.SMTPPass, es.cfg.SMTPHost)

	return smtp.SendMail(addr, auth, es.cfg.SMTPFrom, []string{recipient}, []byte(msg.String()))
}
