package entity

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
)

type Membership string

const (
	MembershipRegular Membership = "regular"
	MembershipSilver  Membership = "silver"
	MembershipGold    Membership = "gold"
)

type User struct {
	Base
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password"`
	Phone        *string    `db:"phone"`
	Role         UserRole   `db:"role"`
	Membership   Membership `db:"membership"`
	Balance      int64      `db:"balance"`
	TotalSpent   int64      `db:"total_spent"`
}
