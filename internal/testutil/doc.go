// Package testutil provides fakes shared by salesboost package tests:
// an in-process host storefront (cart read and add endpoints), an admin
// config server, an analytics collector and deterministic cache busters.
package testutil
