package backend

// DefaultDepth is the history depth used for clones and fetches unless
// WithDepth overrides it.
const DefaultDepth = 1

type options struct {
	depth          int
	env            []string
	committerName  string
	committerEmail string
}

type Option func(*options)

// WithDepth sets the history depth for clone and fetch. Zero or a negative
// value requests the full history.
func WithDepth(depth int) Option {
	return func(o *options) {
		if depth < 0 {
			depth = 0
		}
		o.depth = depth
	}
}

// WithEnv appends KEY=VALUE pairs to the environment of spawned processes.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithCommitter sets the identity used for commits when the repository
// configuration does not provide one.
func WithCommitter(name, email string) Option {
	return func(o *options) {
		o.committerName = name
		o.committerEmail = email
	}
}

func buildOptions(opts []Option) options {
	o := options{
		depth:          DefaultDepth,
		committerName:  "gitdeps",
		committerEmail: "gitdeps@localhost",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
