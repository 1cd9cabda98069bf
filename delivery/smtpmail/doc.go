// Package smtpmail implements delivery.EmailSender over SMTP.
//
// Messages are rendered from embedded templates. Each template file defines
// a "subject", an "email_text" and an "email_html" block; the text blocks go
// through text/template and the HTML block through html/template.
package smtpmail
