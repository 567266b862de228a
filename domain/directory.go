package domain

// Employee is a directory entry that can be added to a chat.
type Employee struct {
	ID         UserID
	Name       string
	Email      string
	Avatar     string
	Department string
	Role       string
}

// Profile builds the denormalized member profile carried by participants.
func (e Employee) Profile() MemberProfile {
	return MemberProfile{
		Name:       e.Name,
		Email:      e.Email,
		Avatar:     e.Avatar,
		Department: e.Department,
		Role:       e.Role,
	}
}

// Project is a directory entry a chat can be linked to.
type Project struct {
	ID   ProjectID
	Name string
}
