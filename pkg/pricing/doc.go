// Package pricing computes tax-inclusive amounts for subscription plans.
//
// All amounts are held in paise (1/100 INR) as int64 to keep the arithmetic
// exact. GST is applied at a fixed 18% with half-up rounding to the paise.
//
// The plan catalog ships with built-in defaults and can be overridden from a
// YAML file; a CatalogWatcher hot-reloads the file on change so a running
// calculator never serves stale prices.
package pricing
