// Package account tracks the signed-in user's account details, such as the
// coin balance, which change after every chat turn.
package account
