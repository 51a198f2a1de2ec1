package models

// Role — закрытое множество ролей вызывающего. Проверяется один раз на
// границе (middleware), ядро получает уже авторизованный Caller и доверяет ему.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleStudent, RoleAdmin:
		return true
	}
	return false
}

// Caller — идентичность вызывающего, извлечённая из JWT на границе.
type Caller struct {
	UserID int  `json:"user_id"`
	Role   Role `json:"role"`
}

// CanManage — может ли вызывающий управлять турнирами (сетка, shuffle,
// управление матчами).
func (c Caller) CanManage() bool {
	return c.Role == RoleTeacher || c.Role == RoleAdmin
}
