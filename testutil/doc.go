/*
Package testutil spins up clusters of reference parties for tests.

StartCluster serves every party from its own httptest server behind the same
base server and handler a party daemon uses, wires their party-to-party
transport and returns a client over the roster:

	cluster := testutil.StartCluster(t, testutil.WithParties(3), testutil.WithThreshold(2))
	cluster.ShareBid(t, 1, 10)
	cluster.ShareBid(t, 2, 3)

	outcomes := cluster.Client.Bidders(ctx)
	require.NoError(t, outcomes.Err())

Parties are seeded with TestPrime unless Unseeded is given. TestParams
returns comparison parameters small enough for TestPrime.

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
