package auth

// Caller identifies the authenticated user behind a request. Services take it
// as an explicit argument instead of reading ambient request state.
type Caller struct {
	ID   string
	Role string
}

func (c Caller) IsAdmin() bool   { return c.Role == "admin" }
func (c Caller) IsDoctor() bool  { return c.Role == "doctor" }
func (c Caller) IsPatient() bool { return c.Role == "patient" }
