// Package mailer sends transactional order emails over SMTP. Sends are
// executed by the job layer, which owns retries; a send here either
// succeeds or returns an error.
package mailer

import (
	"fmt"
	"net/smtp"
	"os"
)

type Conf struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewConf reads the SMTP settings from the environment.
func NewConf() (*Conf, error) {
	c := &Conf{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
	}
	if c.host == "" || c.port == "" {
		return nil, fmt.Errorf("SMTP_HOST and SMTP_PORT must be set")
	}
	if c.from == "" {
		c.from = "no-reply@example.com"
	}
	return c, nil
}

// Send delivers a plain-text message to a single recipient.
func (c *Conf) Send(to, subject, body string) error {
	message := []byte("To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")

	auth := smtp.PlainAuth("", c.username, c.password, c.host)
	if err := smtp.SendMail(c.host+":"+c.port, auth, c.from, []string{to}, message); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// OrderConfirmation formats the order confirmation email body.
func OrderConfirmation(orderID string) (subject, body string) {
	return "Order Confirmation",
		fmt.Sprintf("Thank you for your order! Your order ID is %s. We are processing it now.", orderID)
}

// PaymentReceipt formats the payment receipt email body.
func PaymentReceipt(orderID string, amount int64, currency string) (subject, body string) {
	return "Payment Received",
		fmt.Sprintf("We received your payment of %d %s for order %s.", amount, currency, orderID)
}

// PaymentFailure formats the payment failure email body.
func PaymentFailure(orderID string) (subject, body string) {
	return "Payment Failed",
		fmt.Sprintf("Your payment for order %s could not be processed. Please try again.", orderID)
}
