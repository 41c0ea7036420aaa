package modtree

// Option represents a configuration option for the tree
type Option func(*Tree) error

// WithName sets the tree name. It is used as the CloudEvents source of every
// notification and as the "tree" key in log records.
func WithName(name string) Option {
	return func(t *Tree) error {
		if name == "" {
			return ErrEmptyTreeName
		}
		t.name = name
		return nil
	}
}

// WithLogger sets the logger. A nil logger keeps the default stderr logger.
func WithLogger(logger Logger) Option {
	return func(t *Tree) error {
		t.logger = logger
		return nil
	}
}

// WithObserver registers an observer before any notification can fire.
func WithObserver(observer Observer, eventTypes ...string) Option {
	return func(t *Tree) error {
		if t.logger == nil {
			t.logger = defaultLogger()
		}
		return t.RegisterObserver(observer, eventTypes...)
	}
}
