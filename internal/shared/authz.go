package shared

// Permission keys in "app_label.codename" form.
const (
	PermViewPerson   = "blasbase.view_person"
	PermAddPerson    = "blasbase.add_person"
	PermChangePerson = "blasbase.change_person"
	PermDeletePerson = "blasbase.delete_person"

	PermViewFunction   = "blasbase.view_function"
	PermChangeFunction = "blasbase.change_function"

	PermViewAssignment   = "blasbase.view_assignment"
	PermChangeAssignment = "blasbase.change_assignment"

	PermViewUser   = "blasbase.view_blasuser"
	PermChangeUser = "blasbase.change_blasuser"

	PermViewPermission = "auth.view_permission"

	PermViewLogEntry = "admin.view_logentry"
)

// CoreScopes lists every permission the application checks.
func CoreScopes() []string {
	return []string{
		PermViewPerson,
		PermAddPerson,
		PermChangePerson,
		PermDeletePerson,
		PermViewFunction,
		PermChangeFunction,
		PermViewAssignment,
		PermChangeAssignment,
		PermViewUser,
		PermChangeUser,
		PermViewPermission,
		PermViewLogEntry,
	}
}
