package diff

import (
	"reflect"

	"github.com/google/uuid"
	odiff "github.com/r3labs/diff/v3"
	"github.com/shopspring/decimal"
)

func GetCustomDiffer() *odiff.Differ {
	ret, err := odiff.NewDiffer(odiff.CustomValueDiffers(&UUIDComparer{}, &DecimalComparer{}))
	if err != nil {
		panic(err)
	}
	return ret
}

// Changes lists what a transition changed, e.g. on a db.Ride or db.RideLock.
func Changes(before, after interface{}) (odiff.Changelog, error) {
	return GetCustomDiffer().Diff(before, after)
}

var (
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// matchLeaf reports whether a and b are both of type t, or one is t and the other is nil.
func matchLeaf(t reflect.Type, a, b reflect.Value) bool {
	aok := a.Kind() == t.Kind() && a.Type() == t
	bok := b.Kind() == t.Kind() && b.Type() == t
	return (aok && bok) || (a.Kind() == reflect.Invalid && bok) || (b.Kind() == reflect.Invalid && aok)
}

// diffLeaf records one UPDATE when a and b differ according to equal.
func diffLeaf[T any](cl *odiff.Changelog, path []string, a, b reflect.Value, equal func(T, T) bool) {
	valA := reflect.Indirect(a)
	valB := reflect.Indirect(b)

	if !valA.IsValid() || !valB.IsValid() {
		if valA.IsValid() != valB.IsValid() {
			cl.Add(odiff.UPDATE, path, a.Interface(), b.Interface())
		}
		return
	}

	v1 := valA.Interface().(T)
	v2 := valB.Interface().(T)
	if !equal(v1, v2) {
		cl.Add(odiff.UPDATE, path, v1, v2)
	}
}

type UUIDComparer struct{}

// Match check is field match this custom type
func (c UUIDComparer) Match(a, b reflect.Value) bool {
	return matchLeaf(uuidType, a, b)
}

// Diff compares the ids as a whole instead of byte by byte.
func (c UUIDComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	diffLeaf(cl, path, a, b, func(u1, u2 uuid.UUID) bool { return u1 == u2 })
	return nil
}

// InsertParentDiffer is a no-op, uuid is a leaf.
func (c UUIDComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
}

// DecimalComparer treats 10.5 and 10.50 as the same amount.
type DecimalComparer struct{}

func (c DecimalComparer) Match(a, b reflect.Value) bool {
	return matchLeaf(decimalType, a, b)
}

func (c DecimalComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	diffLeaf(cl, path, a, b, decimal.Decimal.Equal)
	return nil
}

func (c DecimalComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
}
