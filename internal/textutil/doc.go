// Package textutil provides text helpers shared by the asset store and the
// intake path: tag slugs and filesystem-safe display names.
package textutil
