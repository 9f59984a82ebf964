package models

type UserType string

const (
	UserTypeClient   UserType = "client"
	UserTypeBusiness UserType = "business"
)

// User mirrors the identity service's account row. For business accounts the user ID
// doubles as the business ID.
type User struct {
	ID       uint     `json:"id" gorm:"primaryKey"`
	Username string   `json:"username" gorm:"column:username;not null"`
	UserType UserType `json:"userType" gorm:"column:user_type;type:text;not null"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
