// Пакет rbac — определение роли пользователя каталога по группам IdP.
// Роли упорядочены по привилегиям: readonly < operator < admin.
// Старшая роль включает права младших.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleReadonly = "readonly"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// roleWeight — вес роли для сравнения.
var roleWeight = map[string]int{
	RoleReadonly: 1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// GroupMapping — соответствие групп IdP ролям каталога.
type GroupMapping struct {
	AdminGroups    []string
	OperatorGroups []string
	ReadonlyGroups []string
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль пользователя по его группам IdP.
// Возвращает максимальную роль из всех совпадений
// или пустую строку, если ни одна группа не совпала.
func MapGroupsToRole(groups []string, mapping GroupMapping) string {
	sets := []struct {
		role  string
		names map[string]bool
	}{
		{RoleAdmin, toSet(mapping.AdminGroups)},
		{RoleOperator, toSet(mapping.OperatorGroups)},
		{RoleReadonly, toSet(mapping.ReadonlyGroups)},
	}

	var roles []string
	for _, g := range groups {
		for _, s := range sets {
			if s.names[g] {
				roles = append(roles, s.role)
			}
		}
	}

	return HighestRole(roles)
}

// Allows проверяет, достаточно ли роли role для операции,
// требующей роль required.
func Allows(role, required string) bool {
	w, ok := roleWeight[role]
	if !ok {
		return false
	}
	return w >= roleWeight[required]
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
