// Package otp implements the one-time code workflow used for phone and email
// verification: issue a short-lived numeric code under resend throttling,
// deliver it out of band, then verify submissions with attempt lockout.
//
// The engine owns the lifecycle rules; storage and delivery are injected, so
// the phone flow (SQL-backed, SMS dispatch) and the email flow (Redis-backed,
// SMTP) share a single implementation.
package otp
