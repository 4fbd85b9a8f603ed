package watcher

import "context"

// Client owns at most one websocket to the price server and the table built
// from the last snapshot it received.
type Client interface {
	// Connect opens the socket unless one is already open.
	Connect(ctx context.Context) error
	// Subscribe connects if needed and sends the request built from the two
	// input fields. It does nothing when no socket could be opened.
	Subscribe(ctx context.Context, tickersField, intervalField string) error
	// Unsubscribe closes the socket, if any, and clears the table.
	Unsubscribe() error

	Connected() bool
	Table() Table
}
