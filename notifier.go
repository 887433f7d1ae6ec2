package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// LinkBuilder assembles the frontend links that carry invite and reset
// tokens to the user. The token plaintext lives only inside the link.
type LinkBuilder struct {
	base string
}

// NewLinkBuilder creates a LinkBuilder rooted at the frontend URL.
func NewLinkBuilder(frontendURL string) LinkBuilder {
	return LinkBuilder{base: strings.TrimRight(frontendURL, "/")}
}

// AcceptInvite returns the invite redemption link.
func (b LinkBuilder) AcceptInvite(token, email string) string {
	return fmt.Sprintf("%s/accept-invite?token=%s&email=%s",
		b.base,
		url.QueryEscape(token),
		url.QueryEscape(email),
	)
}

// ResetPassword returns the password reset link.
func (b LinkBuilder) ResetPassword(token, email string) string {
	return fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		b.base,
		url.QueryEscape(token),
		url.QueryEscape(email),
	)
}

// StdoutNotifier is the development Notifier: it prints the message
// instead of delivering it.
// TODO: we need to handle emails...
type StdoutNotifier struct{}

func (StdoutNotifier) InviteCreated(_ context.Context, email, link string) error {
	printEmailNotification("You have been invited", email, link)
	return nil
}

func (StdoutNotifier) PasswordResetRequested(_ context.Context, email, link string) error {
	printEmailNotification("Reset your password", email, link)
	return nil
}

var _ Notifier = StdoutNotifier{}

func printEmailNotification(subject, email, link string) {
	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Printf("subject: %s\n", subject)
	fmt.Printf("to: %s\n", email)
	fmt.Printf("link: %s\n", link)
}
