package services

import (
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"gorm.io/gorm"
)

// Notification types shared with the frontend.
const (
	NotifyInfo    = "info"
	NotifySuccess = "success"
	NotifyWarning = "warning"
	NotifyError   = "error"
)

// notifyInput is one in-app notification. Rows are written inside the
// workflow transaction so a transition and its notifications commit
// together; email copies go out after commit via sendMailSafe.
type notifyInput struct {
	UserID       int
	Title        string
	Message      string
	Type         string
	SubmissionID int
}

func createNotification(tx *gorm.DB, n notifyInput) error {
	row := models.Notification{
		UserID:   uint(n.UserID),
		Title:    n.Title,
		Message:  n.Message,
		Type:     n.Type,
		IsRead:   false,
		CreateAt: time.Now(),
	}
	if n.SubmissionID > 0 {
		related := uint(n.SubmissionID)
		row.RelatedSubmissionID = &related
	}
	return tx.Create(&row).Error
}

// mailMessage is an email deferred until after the transaction commits,
// so an SMTP outage can never roll back a committed transition.
type mailMessage struct {
	To      []string
	Subject string
	HTML    string
}

func sendMailSafe(m mailMessage) {
	if len(m.To) == 0 {
		return
	}
	if err := config.SendMail(m.To, m.Subject, m.HTML); err != nil {
		log.Printf("notification email send failed (subject=%q to=%v): %v", m.Subject, m.To, err)
	}
}

func sendMailBatch(mails []mailMessage) {
	for _, m := range mails {
		sendMailSafe(m)
	}
}

func buildFormalEmailHTML(subject, recipientName, message string) string {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "Researcher"
	}

	escapedSubject := template.HTMLEscapeString(subject)
	escapedGreeting := template.HTMLEscapeString(fmt.Sprintf("Dear %s,", name))
	escapedMessage := template.HTMLEscapeString(strings.TrimSpace(message))
	escapedMessage = strings.ReplaceAll(strings.ReplaceAll(escapedMessage, "\r\n", "\n"), "\r", "\n")
	escapedMessage = strings.ReplaceAll(escapedMessage, "\n", "<br />")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body style="margin:0;padding:0;background-color:#f9fafb;font-family:'Segoe UI',Tahoma,Arial,sans-serif;">
<div style="max-width:640px;margin:0 auto;padding:24px 20px;">
  <div style="background-color:#ffffff;border:1px solid #e5e7eb;border-radius:12px;padding:24px 24px 28px 24px;">
    <p style="margin:0 0 16px 0;font-size:16px;line-height:1.7;color:#111827;">%s</p>
    <p style="margin:0 0 0 0;font-size:16px;line-height:1.7;color:#111827;word-break:break-word;">%s</p>
  </div>
</div>
</body>
</html>`, escapedSubject, escapedGreeting, escapedMessage)
}

// mailTo builds the email copy of a notification for one recipient,
// skipping users without an address.
func mailTo(user *models.User, subject, message string) []mailMessage {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return nil
	}
	return []mailMessage{{
		To:      []string{user.Email},
		Subject: subject,
		HTML:    buildFormalEmailHTML(subject, user.FullName(), message),
	}}
}
