package core

import "fmt"

// Identity identifies the author of write transactions.
type Identity struct {
	Name  string `json:"name" yaml:"name" env:"NAME"`
	Email string `json:"email" yaml:"email" env:"EMAIL"`
}

func (identity Identity) String() string {
	return fmt.Sprintf("%s <%s>", identity.Name, identity.Email)
}
