// Package mail sends outbound email.
//
// Callers build a Message and hand it to the Mail interface. The SMTP
// implementation in this package is the only concrete sender today; keeping
// the interface between use cases and delivery leaves room to swap in an API
// provider without touching the modules.
package mail
