// Package notification delivers account e-mails: the address-validation link
// sent after sign-up or an e-mail change, and the generated password sent by
// password recovery.
//
// A Mailer renders the message from built-in templates and hands it to a
// Sender, which owns the transport:
//
//	sender, err := notification.NewSMTPSender(notification.SMTPConfig{
//	    Host: "localhost",
//	    Port: 1025,
//	    From: "noreply@example.com",
//	})
//	mailer := notification.NewMailer(sender)
//	err = mailer.SendValidation(ctx, "orion@test.com", link)
//
// Senders are provided for SMTP (go-mail), Amazon SES and slog. MockSender
// records messages for tests.
package notification
