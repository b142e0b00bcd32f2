package validation

type Validator[T any] interface {
	Validate(obj T) error
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc[T any] func(obj T) error

func (f ValidatorFunc[T]) Validate(obj T) error {
	return f(obj)
}

// CompoundValidator runs its validators in order and returns the first error.
type CompoundValidator[T any] struct {
	validators []Validator[T]
}

func NewCompoundValidator[T any](validators ...Validator[T]) CompoundValidator[T] {
	return CompoundValidator[T]{
		validators: validators,
	}
}

func (c CompoundValidator[T]) Validate(obj T) error {
	for _, v := range c.validators {
		err := v.Validate(obj)
		if err != nil {
			return err
		}
	}
	return nil
}
