package testutil

// FixedRunToken hands out the same run token on every call.
//
// Every run in a scenario then shares one token, which keeps journal rows
// and trace snapshots stable across executions.
type FixedRunToken struct {
	token string
}

// NewFixedRunToken returns a generator for token, or for
// "test-run-default" when token is empty.
func NewFixedRunToken(token string) *FixedRunToken {
	if token == "" {
		token = "test-run-default"
	}
	return &FixedRunToken{token: token}
}

func (g *FixedRunToken) Generate() string {
	return g.token
}
