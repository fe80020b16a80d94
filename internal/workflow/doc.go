// Package workflow implements the delegated two-agent workflow runner: both
// participants are resolved by logical name, their credentials verified, the
// requested action checked against the delegation policy, optionally approved
// by a human, and only then is the domain computation executed. Results are
// immutable snapshots assembled once at completion.
//
// One quirk of the banking scorer is preserved intentionally: the "normal
// spending pattern" note is appended whenever the pre-clamp score stays below
// 0.3, even when individual checks already contributed reasons, so both kinds
// of entries can co-exist for borderline transactions.
package workflow
