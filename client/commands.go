package client

import "context"

// Add registers a message file with the store (path, maildir).
func (e *Engine) Add(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdAdd, args)
}

// Compose prepares a reply, forward, edit or new message (type, docid).
func (e *Engine) Compose(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdCompose, args)
}

// Contacts lists known contacts (personal, after).
func (e *Engine) Contacts(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdContacts, args)
}

// Extract saves, opens or temps a message part (action, docid, index, path).
func (e *Engine) Extract(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdExtract, args)
}

// Find runs a query (query, threads, sortfield, reverse, maxnum).
func (e *Engine) Find(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdFind, args)
}

// Index re-indexes the mail store and returns the final progress report.
func (e *Engine) Index(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdIndex, args)
}

func (e *Engine) Mkdir(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdMkdir, args)
}

// Move moves a message and/or changes its flags (docid|msgid, maildir, flags).
func (e *Engine) Move(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdMove, args)
}

func (e *Engine) Ping(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdPing, args)
}

func (e *Engine) Remove(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdRemove, args)
}

// View returns one message (docid|msgid|path).
func (e *Engine) View(ctx context.Context, args Args) (any, error) {
	return e.Call(ctx, CmdView, args)
}
