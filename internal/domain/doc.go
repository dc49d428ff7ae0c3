// Package domain models encrypted sensor contributions and the disclosure of
// a single coarse smoke-propagation alert per location.
//
// # Contributions
//
// Agencies submit three ciphertexts per observation: smoke concentration, wind
// speed and wind direction. Values are opaque to this service; every operation
// on them goes through a [Scheme], which exposes addition, multiplication and
// division by a plaintext scalar but never decryption.
//
// # Propagation formula
//
// For a location with N readings:
//
//	avgSmoke     = Σ smoke / N
//	avgWindSpeed = Σ windSpeed / N
//	avgDirection = Σ windDirection / N   (aggregated, not part of the score)
//	prediction   = avgSmoke × avgWindSpeed
//
// Division truncates. The direction average is computed but left out of the
// score; the formula is kept exactly as deployed.
//
// # Disclosure
//
// Only the prediction is ever decrypted, by an external oracle that answers
// asynchronously with the cleartext and a proof. The revealed value is collapsed
// immediately into one of five alert levels:
//
//	> 8000  Hazardous
//	> 5000  Very Unhealthy
//	> 3000  Unhealthy
//	> 1000  Moderate
//	else    Good
//
// # Lifecycle
//
// Each location moves strictly forward through
// NoData → AwaitingComputation → Computed → DisclosureRequested → Revealed.
// No transition is ever undone.
package domain
