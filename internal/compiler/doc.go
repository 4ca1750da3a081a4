// Package compiler turns the admin config document into campaign configs.
//
// Compilation is two-phase:
//  1. The raw JSON document is unified with the embedded CUE schema
//     (schema.cue) so malformed documents fail with a positioned error
//     before any Go value is built.
//  2. The validated document is decoded into wire structs and mapped to
//     []ir.CampaignConfig in configuration order: smartOffers, bundles,
//     cartGifts, shippingBar. That order is the selector's tie-break.
//
// Module flags (modules.offersEnabled, modules.bundlesEnabled) disable
// whole families of campaigns; an absent flag means enabled.
package compiler
