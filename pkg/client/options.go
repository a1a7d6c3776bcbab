package client

// Option configures a Client at connect time.
type Option func(*options)

type options struct {
	user string
	pass string
}

// WithUserPass sets CONNECT credentials, grounded in
// conectar_con_user_y_pass.
func WithUserPass(user, pass string) Option {
	return func(o *options) {
		o.user = user
		o.pass = pass
	}
}
