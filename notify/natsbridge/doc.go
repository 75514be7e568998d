// Package natsbridge keeps query managers in different processes in step.
// Repository changes are published as ChangeNotice messages on NATS, and
// watched managers reload when another process reports a change to their
// category.
package natsbridge
