package audio

import (
	"errors"
	"fmt"
)

// ErrUnsupported шаг недоступен на текущей платформе.
// Решение принимается до вызова платформы по Capabilities.
var ErrUnsupported = errors.New("operation not supported on this platform")

// DeviceError ошибка вызова платформы, который был выполнен и завершился неудачей
type DeviceError struct {
	Op          string
	Unsupported bool
	Err         error
}

// Error реализует интерфейс error
func (e *DeviceError) Error() string {
	if e.Unsupported {
		return fmt.Sprintf("audio %s: %v", e.Op, ErrUnsupported)
	}
	return fmt.Sprintf("audio %s: %v", e.Op, e.Err)
}

// Unwrap возвращает исходную ошибку
func (e *DeviceError) Unwrap() error {
	if e.Unsupported {
		return ErrUnsupported
	}
	return e.Err
}

// IsUnsupported проверяет, что шаг был пропущен как неподдерживаемый
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func unsupported(op string) error {
	return &DeviceError{Op: op, Unsupported: true}
}

// attempt выполняет вызов платформы, превращая ошибку и панику в DeviceError
func attempt(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DeviceError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if callErr := fn(); callErr != nil {
		return &DeviceError{Op: op, Err: callErr}
	}
	return nil
}
