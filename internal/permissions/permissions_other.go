//go:build !darwin

package permissions

func platformStatus(Permission) Status {
	return Authorized
}

func platformOpenSettings(Permission) error {
	return nil
}
