// Package clock abstracts time for components that schedule work.
//
// Production code uses Real(). Tests use Fake(), where time stands still
// until Advance is called and AfterFunc callbacks run synchronously in
// deadline order.
package clock
