// Package utils holds small helpers shared by the storage packages.
//
//   - ReadJSONFile / WriteJSONFile back the file repositories; writes go to a temp file
//     and are renamed into place.
//   - MaskEmail hides most of an address before it is logged.
//   - ToNullString converts optional text columns for pgx.
package utils
