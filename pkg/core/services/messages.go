package services

import (
	"errors"
	"fmt"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrBusy            = errors.New("operation already in progress")
	ErrPendingNotFound = errors.New("pending confirmation not found")
	ErrSlotClosed      = errors.New("slot closed")
	ErrValidation      = errors.New("validation failed")
	ErrNotTestEnv      = errors.New("only allowed in the test environment")
)

// User-facing texts
const (
	msgNotAuthenticated  = "Debes iniciar sesión para apuntarte a un turno."
	msgProfileIncomplete = "Completa tu nombre y apellidos en tu perfil antes de apuntarte a un turno."
	msgForbidden         = "No tienes permisos para realizar esta acción."
	msgUserNotFound      = "Usuario no encontrado."
	msgPendingExpired    = "La confirmación ha caducado. Vuelve a intentarlo."
)

var weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// describeSlot renders "mañana del lunes 26/05/2025"
func describeSlot(key model.SlotKey) string {
	day, err := key.Time()
	if err != nil {
		return key.ID()
	}
	return fmt.Sprintf("%s del %s %s", key.Period.Label(), weekdays[day.Weekday()], day.Format("02/01/2006"))
}

func msgSelfAdded(key model.SlotKey) string {
	return fmt.Sprintf("Te has asignado al turno de %s.", describeSlot(key))
}

func msgSelfRemoved(key model.SlotKey) string {
	return fmt.Sprintf("Te has quitado del turno de %s.", describeSlot(key))
}

func msgClosed(key model.SlotKey) string {
	return fmt.Sprintf("El turno de %s está cerrado.", describeSlot(key))
}

func msgOverCapacity(key model.SlotKey, count, capacity int) string {
	return fmt.Sprintf("El turno de %s ya tiene %d personas (máximo recomendado: %d). ¿Quieres apuntarte igualmente?",
		describeSlot(key), count, capacity)
}

func msgAdminAdded(name string, key model.SlotKey) string {
	return fmt.Sprintf("Has asignado a %s al turno de %s.", name, describeSlot(key))
}

func msgAdminRemovalPrompt(name string, key model.SlotKey) string {
	return fmt.Sprintf("¿Seguro que quieres quitar a %s del turno de %s?", name, describeSlot(key))
}

func msgAdminRemoved(name string, key model.SlotKey) string {
	return fmt.Sprintf("Has quitado a %s del turno de %s.", name, describeSlot(key))
}

func msgWriteFailed(err error) string {
	return fmt.Sprintf("No se pudo actualizar el turno: %v", err)
}

// rejectionText maps an actor check failure to its warning text
func rejectionText(err error) string {
	switch {
	case errors.Is(err, policy.ErrNotAuthenticated):
		return msgNotAuthenticated
	case errors.Is(err, policy.ErrProfileIncomplete):
		return msgProfileIncomplete
	case errors.Is(err, policy.ErrForbidden):
		return msgForbidden
	}
	return err.Error()
}

func overrideEmail(name string, key model.SlotKey, added bool) (string, string) {
	if added {
		return "Te han asignado un turno",
			fmt.Sprintf("Hola %s,\n\nUn administrador te ha asignado al turno de %s.\n\nGracias por tu ayuda.", name, describeSlot(key))
	}
	return "Te han quitado de un turno",
		fmt.Sprintf("Hola %s,\n\nUn administrador te ha quitado del turno de %s.\n\nGracias por tu ayuda.", name, describeSlot(key))
}
