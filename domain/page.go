package domain

// Page selects a window of a chat's messages, newest pages last.
type Page struct {
	Limit  int
	Offset int
}
