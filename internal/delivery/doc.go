// Package delivery implements scheduler.Deliverer channels.
//
// Slack posts the alert with chat.postMessage, addressed to a user ID (which
// Slack delivers as a direct message) or a channel ID. Log writes the alert
// to the log, or to a writer, without sending anything. Neither retries;
// the scheduler decides what a failed attempt means.
package delivery
