package handler

type createUserRequest struct {
	Username  string   `json:"username"  validate:"required,min=3,max=64"`
	Email     string   `json:"email"     validate:"required,email"`
	Password  string   `json:"password"  validate:"required,min=8"`
	FirstName string   `json:"firstName" validate:"required"`
	LastName  string   `json:"lastName"  validate:"required"`
	Phone     string   `json:"phone,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

type grantRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}
