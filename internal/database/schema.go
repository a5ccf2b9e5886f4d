package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists every table the service needs, in dependency order.
// Statements are idempotent so Bootstrap can run on every startup.
//
// seat_status is append-only: rows are never updated or deleted, and
// the row with the highest id per (screening_id, seat_id) is
// authoritative.  The covering index makes the latest-row lookup a
// short backward index scan.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'CUSTOMER',
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS halls (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS seats (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		hall_id          BIGINT UNSIGNED NOT NULL,
		row_label        VARCHAR(8)  NOT NULL,
		seat_number      INT UNSIGNED NOT NULL,
		seat_type        VARCHAR(16) NOT NULL DEFAULT 'STANDARD',
		price_factor_pct BIGINT NOT NULL DEFAULT 0,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_seats_position (hall_id, row_label, seat_number),
		KEY idx_seats_hall (hall_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS screenings (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		hall_id          BIGINT UNSIGNED NOT NULL,
		movie_title      VARCHAR(255) NOT NULL,
		starts_at        DATETIME NOT NULL,
		base_price_cents BIGINT NOT NULL,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_screenings_hall (hall_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS seat_holds (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		screening_id BIGINT UNSIGNED NOT NULL,
		seat_id      BIGINT UNSIGNED NOT NULL,
		user_id      BIGINT UNSIGNED NOT NULL,
		status       VARCHAR(16) NOT NULL,
		hold_token   VARCHAR(64) NOT NULL,
		expires_at   DATETIME NOT NULL,
		order_id     BIGINT UNSIGNED NULL,
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_holds_screening_seat (screening_id, seat_id, status),
		KEY idx_holds_token (screening_id, hold_token),
		KEY idx_holds_order (order_id),
		KEY idx_holds_expiry (status, expires_at)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS seat_status (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		screening_id    BIGINT UNSIGNED NOT NULL,
		seat_id         BIGINT UNSIGNED NOT NULL,
		status          VARCHAR(16) NOT NULL,
		holder_user_id  BIGINT UNSIGNED NULL,
		hold_expires_at DATETIME NULL,
		order_id        BIGINT UNSIGNED NULL,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_status_latest (screening_id, seat_id, id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS orders (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id         BIGINT UNSIGNED NOT NULL,
		screening_id    BIGINT UNSIGNED NOT NULL,
		idempotency_key VARCHAR(128) NOT NULL,
		status          VARCHAR(16) NOT NULL,
		seat_ids        TEXT NOT NULL,
		pricing         TEXT NOT NULL,
		voucher_id      BIGINT UNSIGNED NULL,
		qr_code         VARCHAR(128) NOT NULL DEFAULT '',
		expires_at      DATETIME NOT NULL,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_orders_idem (idempotency_key),
		KEY idx_orders_user (user_id),
		KEY idx_orders_status_expiry (status, expires_at)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS tickets (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_id     BIGINT UNSIGNED NOT NULL,
		screening_id BIGINT UNSIGNED NOT NULL,
		seat_id      BIGINT UNSIGNED NOT NULL,
		user_id      BIGINT UNSIGNED NOT NULL,
		status       VARCHAR(16) NOT NULL,
		price_cents  BIGINT NOT NULL,
		code         VARCHAR(64) NOT NULL,
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_tickets_code (code),
		KEY idx_tickets_order (order_id),
		KEY idx_tickets_status_created (status, created_at)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS payments (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_id       BIGINT UNSIGNED NOT NULL,
		gateway        VARCHAR(32) NOT NULL,
		amount_cents   BIGINT NOT NULL,
		fee_cents      BIGINT NOT NULL DEFAULT 0,
		net_cents      BIGINT NOT NULL DEFAULT 0,
		status         VARCHAR(24) NOT NULL,
		provider_tx_id VARCHAR(128) NOT NULL DEFAULT '',
		provider_ref   VARCHAR(128) NOT NULL DEFAULT '',
		raw_payload    MEDIUMTEXT NULL,
		error_code     VARCHAR(64) NOT NULL DEFAULT '',
		error_message  TEXT NULL,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_payments_order (order_id),
		KEY idx_payments_provider_tx (gateway, provider_tx_id),
		KEY idx_payments_provider_ref (gateway, provider_ref)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS webhook_events (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		gateway         VARCHAR(32) NOT NULL,
		event_type      VARCHAR(64) NOT NULL DEFAULT '',
		idempotency_key VARCHAR(128) NOT NULL,
		payload         MEDIUMTEXT NULL,
		verified        TINYINT(1) NOT NULL DEFAULT 0,
		handled         TINYINT(1) NOT NULL DEFAULT 0,
		payment_id      BIGINT UNSIGNED NULL,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_webhook_idem (idempotency_key)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS refunds (
		id                 BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		payment_id         BIGINT UNSIGNED NOT NULL,
		amount_cents       BIGINT NOT NULL,
		status             VARCHAR(16) NOT NULL,
		idempotency_key    VARCHAR(128) NOT NULL,
		provider_refund_id VARCHAR(128) NOT NULL DEFAULT '',
		reason             TEXT NULL,
		created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refunds_idem (idempotency_key),
		KEY idx_refunds_payment (payment_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS vouchers (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		code        VARCHAR(64) NOT NULL,
		value_cents BIGINT NOT NULL,
		user_id     BIGINT UNSIGNED NULL,
		used        TINYINT(1) NOT NULL DEFAULT 0,
		order_id    BIGINT UNSIGNED NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_vouchers_code (code)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS combos (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		code        VARCHAR(64) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		price_cents BIGINT NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_combos_code (code)
	) ENGINE=InnoDB`,
}

// Bootstrap creates every table that does not exist yet.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
