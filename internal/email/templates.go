package email

import "fmt"

type Content struct {
	Subject string
	Text    string
	HTML    string
}

func VerificationEmail(link string) Content {
	return Content{
		Subject: "Verify Your Email Address",
		Text: "Thank you for signing up! Verify your email address by opening this link:\n" +
			link + "\nThe link expires in 24 hours.\n" +
			"If you didn't create an account with us, please ignore this email.",
		HTML: "<h1>Welcome to BookClub!</h1>" +
			"<p>Thank you for signing up! To complete your registration, please verify your email address:</p>" +
			fmt.Sprintf(`<p><a href="%s">Verify Email Address</a></p>`, link) +
			"<p>If the button doesn't work, copy and paste this link into your browser:</p>" +
			fmt.Sprintf("<p>%s</p>", link) +
			"<p><strong>This link will expire in 24 hours.</strong></p>" +
			"<p>If you didn't create an account with us, please ignore this email.</p>",
	}
}

func PasswordResetEmail(link string) Content {
	return Content{
		Subject: "Reset Your Password",
		Text: "We received a request to reset your password. Open this link to set a new password:\n" +
			link + "\nThe link expires in 1 hour.\n" +
			"If you didn't request a password reset, please ignore this email.",
		HTML: "<h1>Password Reset Request</h1>" +
			"<p>We received a request to reset your password. Click the link below to set a new password:</p>" +
			fmt.Sprintf(`<p><a href="%s">Reset Password</a></p>`, link) +
			"<p>If the button doesn't work, copy and paste this link into your browser:</p>" +
			fmt.Sprintf("<p>%s</p>", link) +
			"<p><strong>This link will expire in 1 hour.</strong></p>" +
			"<p>If you didn't request a password reset, please ignore this email. Your password will remain unchanged.</p>",
	}
}
