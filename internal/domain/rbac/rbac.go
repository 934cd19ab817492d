// Пакет rbac вычисляет действующую роль пользователя.
// Источника два: группы из IdP и локальное дополнение (role override)
// в профиле. Итог — максимум из обоих: дополнение повышает роль,
// понизить роль из IdP оно не может.
package rbac

// Роли TaskTrack в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePrecedence = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// IsValidRole — допустима ли строка как роль.
func IsValidRole(role string) bool {
	_, ok := rolePrecedence[role]
	return ok
}

// EffectiveRole — max(роль из IdP, локальное дополнение).
// nil-дополнение оставляет роль из IdP как есть.
func EffectiveRole(idpRole string, roleOverride *string) string {
	if roleOverride == nil {
		return idpRole
	}
	return higher(idpRole, *roleOverride)
}

// HighestRole — старшая роль набора; пустой набор даёт пустую строку.
func HighestRole(roles []string) string {
	var top string
	for _, r := range roles {
		if top == "" {
			top = r
			continue
		}
		top = higher(top, r)
	}
	return top
}

// MapGroupsToRole сопоставляет группы пользователя из IdP с ролями.
// Совпадение с adminGroups даёт admin, с userGroups — user; при
// нескольких совпадениях берётся старшая роль. Без совпадений —
// пустая строка: роли у пользователя нет вовсе.
func MapGroupsToRole(groups []string, adminGroups, userGroups []string) string {
	admin := indexGroups(adminGroups)
	user := indexGroups(userGroups)

	var matched []string
	for _, g := range groups {
		if admin[g] {
			matched = append(matched, RoleAdmin)
		}
		if user[g] {
			matched = append(matched, RoleUser)
		}
	}
	return HighestRole(matched)
}

func higher(a, b string) string {
	if rolePrecedence[a] >= rolePrecedence[b] {
		return a
	}
	return b
}

func indexGroups(groups []string) map[string]bool {
	m := make(map[string]bool, len(groups))
	for _, g := range groups {
		m[g] = true
	}
	return m
}
