package catalog

var schema = []string{
	`CREATE TABLE IF NOT EXISTS hosts (
		host_id      INTEGER NOT NULL,
		host_addr    TEXT    NOT NULL,
		active_state INTEGER NOT NULL DEFAULT 0,
		copy_state   INTEGER NOT NULL DEFAULT 0,
		dest_id      INTEGER,
		create_time  TEXT    NOT NULL DEFAULT (datetime('now', 'localtime'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hosts_host_id ON hosts(host_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hosts_host_addr ON hosts(host_addr)`,

	`CREATE TABLE IF NOT EXISTS directories (
		dir_id       INTEGER NOT NULL,
		dir_name     TEXT    NOT NULL,
		dir_size     INTEGER NOT NULL DEFAULT 0,
		files_size   INTEGER NOT NULL DEFAULT 0,
		location     TEXT    NOT NULL,
		active_state INTEGER NOT NULL DEFAULT 0,
		copy_state   INTEGER NOT NULL DEFAULT 0,
		host_id      INTEGER NOT NULL,
		dest_id      INTEGER,
		create_time  TEXT    NOT NULL DEFAULT (datetime('now', 'localtime'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_directories_dir_id ON directories(dir_id)`,
	`CREATE INDEX IF NOT EXISTS idx_directories_host_id ON directories(host_id)`,
	`CREATE INDEX IF NOT EXISTS idx_directories_dest_id ON directories(dest_id)`,
	`CREATE INDEX IF NOT EXISTS idx_directories_name ON directories(dir_name, location)`,

	`CREATE TABLE IF NOT EXISTS files (
		file_id      INTEGER NOT NULL,
		file_name    TEXT    NOT NULL,
		ext_name     TEXT    NOT NULL DEFAULT '',
		file_size    INTEGER NOT NULL DEFAULT 0,
		location     TEXT    NOT NULL,
		active_state INTEGER NOT NULL DEFAULT 0,
		copy_state   INTEGER NOT NULL DEFAULT 0,
		dest_id      INTEGER,
		dir_id       INTEGER NOT NULL DEFAULT 0,
		copy_status  TEXT,
		create_time  TEXT    NOT NULL DEFAULT (datetime('now', 'localtime')),
		copy_time    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_file_id ON files(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_dir_id ON files(dir_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_dest_id ON files(dest_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_name ON files(file_name, ext_name, location)`,

	`CREATE TABLE IF NOT EXISTS destinations (
		dest_id       INTEGER NOT NULL,
		disk_sn       TEXT    NOT NULL DEFAULT '',
		disk_batch    TEXT    NOT NULL DEFAULT '',
		disk_model    TEXT    NOT NULL DEFAULT '',
		disk_capacity INTEGER NOT NULL DEFAULT 0,
		disk_path     TEXT    NOT NULL,
		active_state  INTEGER NOT NULL DEFAULT 0,
		copy_state    INTEGER NOT NULL DEFAULT 0,
		create_time   TEXT    NOT NULL DEFAULT (datetime('now', 'localtime'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_destinations_dest_id ON destinations(dest_id)`,
	`CREATE INDEX IF NOT EXISTS idx_destinations_disk ON destinations(disk_sn, disk_batch)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		task_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		dest_id    INTEGER NOT NULL,
		dir_id     INTEGER NOT NULL,
		copy_state INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_dest_id ON tasks(dest_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_dir_id ON tasks(dir_id)`,

	// Single row written to take the write lock when a nested transaction
	// asks for a stronger level than the one already open.
	`CREATE TABLE IF NOT EXISTS catalog_lock (
		id  INTEGER PRIMARY KEY,
		seq INTEGER NOT NULL
	)`,
	`INSERT OR IGNORE INTO catalog_lock (id, seq) VALUES (1, 0)`,
}
