package sqlite

// Times are stored as unix nanoseconds, identifiers and decimals as text.
const (
	createAccountsTableSQL = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		points_balance INTEGER NOT NULL DEFAULT 0 CHECK (points_balance >= 0),
		cash_balance INTEGER NOT NULL DEFAULT 0 CHECK (cash_balance >= 0),
		referrer_id TEXT,
		referral_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		disabled INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`

	createReferralsTableSQL = `
	CREATE TABLE IF NOT EXISTS referrals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		referrer_id TEXT NOT NULL,
		referred_id TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`

	createLedgerTableSQL = `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		related_kind TEXT NOT NULL,
		related_id TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		resulting_balance INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`

	createRoomsTableSQL = `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		host_id TEXT NOT NULL,
		guest_id TEXT,
		stake INTEGER NOT NULL,
		currency TEXT NOT NULL,
		state TEXT NOT NULL,
		host_choice TEXT,
		guest_choice TEXT,
		host_reserved INTEGER NOT NULL,
		guest_reserved INTEGER NOT NULL,
		round INTEGER NOT NULL DEFAULT 0,
		last_round_winner TEXT,
		last_round_result TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	)`

	createEventsTableSQL = `
	CREATE TABLE IF NOT EXISTS event_pools (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		outcome_a TEXT NOT NULL,
		outcome_b TEXT NOT NULL,
		odds_a TEXT NOT NULL,
		odds_b TEXT NOT NULL,
		currency TEXT NOT NULL,
		prize_pool INTEGER NOT NULL,
		operator_funded INTEGER NOT NULL,
		betting_open INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		status TEXT NOT NULL,
		winning_outcome TEXT,
		bet_count INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		locked_at INTEGER,
		settled_at INTEGER
	)`

	createBetsTableSQL = `
	CREATE TABLE IF NOT EXISTS bets (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		event_id TEXT NOT NULL REFERENCES event_pools(id),
		account_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		stake INTEGER NOT NULL,
		potential_payout INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`

	createRequestsTableSQL = `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		type TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount INTEGER NOT NULL,
		status TEXT NOT NULL,
		processed_by TEXT,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		processed_at INTEGER
	)`

	createAdjustmentsTableSQL = `
	CREATE TABLE IF NOT EXISTS adjustments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		operator_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`

	createOutboxTableSQL = `
	CREATE TABLE IF NOT EXISTS event_outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		payload TEXT NOT NULL,
		occurred_at INTEGER NOT NULL
	)`

	createIndexesSQL = `
	CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id, id);
	CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id, seq);
	CREATE INDEX IF NOT EXISTS idx_ledger_related ON ledger_entries(related_kind, related_id, seq);
	CREATE INDEX IF NOT EXISTS idx_rooms_state ON rooms(state, created_at);
	CREATE INDEX IF NOT EXISTS idx_events_status ON event_pools(status, end_time);
	CREATE INDEX IF NOT EXISTS idx_bets_event ON bets(event_id, seq);
	CREATE INDEX IF NOT EXISTS idx_bets_account ON bets(account_id, seq);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_account ON requests(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_adjustments_account ON adjustments(account_id, seq)
	`
)

var schema = []struct {
	name string
	sql  string
}{
	{"accounts", createAccountsTableSQL},
	{"referrals", createReferralsTableSQL},
	{"ledger_entries", createLedgerTableSQL},
	{"rooms", createRoomsTableSQL},
	{"event_pools", createEventsTableSQL},
	{"bets", createBetsTableSQL},
	{"requests", createRequestsTableSQL},
	{"adjustments", createAdjustmentsTableSQL},
	{"event_outbox", createOutboxTableSQL},
	{"indexes", createIndexesSQL},
}
