// schema.go

package db

// 统一的数据库表结构定义

// CreateAllTablesSQL 创建所有表的SQL语句
const CreateAllTablesSQL = `
-- 用户表（游客）
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(36) PRIMARY KEY,
    name VARCHAR(50),
    is_guest BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

-- 对局表
CREATE TABLE IF NOT EXISTS matches (
    id VARCHAR(36) PRIMARY KEY,
    room_id VARCHAR(36) NOT NULL,
    game_mode VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE
);

-- 出招表，每局每名玩家一条
CREATE TABLE IF NOT EXISTS plays (
    id VARCHAR(36) PRIMARY KEY,
    match_id VARCHAR(36) REFERENCES matches(id) ON DELETE CASCADE,
    player_id VARCHAR(36) NOT NULL,
    choice VARCHAR(16) NOT NULL,
    played_at TIMESTAMP WITH TIME ZONE NOT NULL,
    UNIQUE (match_id, player_id)
);

-- 对局结果表
CREATE TABLE IF NOT EXISTS match_results (
    id VARCHAR(36) PRIMARY KEY,
    match_id VARCHAR(36) UNIQUE REFERENCES matches(id) ON DELETE CASCADE,
    winner_id VARCHAR(36),
    loser_id VARCHAR(36),
    is_draw BOOLEAN NOT NULL DEFAULT false,
    player1_score INT NOT NULL DEFAULT 0,
    player2_score INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL
);

-- 创建索引以提高查询性能
CREATE INDEX IF NOT EXISTS idx_matches_room_id ON matches(room_id);
CREATE INDEX IF NOT EXISTS idx_matches_game_mode ON matches(game_mode);
CREATE INDEX IF NOT EXISTS idx_matches_created_at ON matches(created_at);
CREATE INDEX IF NOT EXISTS idx_plays_player_id ON plays(player_id);
CREATE INDEX IF NOT EXISTS idx_match_results_winner_id ON match_results(winner_id);
`

// DropAllTablesSQL 删除所有表（按依赖关系顺序）
const DropAllTablesSQL = `
DROP TABLE IF EXISTS match_results CASCADE;
DROP TABLE IF EXISTS plays CASCADE;
DROP TABLE IF EXISTS matches CASCADE;
DROP TABLE IF EXISTS users CASCADE;
`

// InitAllTables 初始化所有数据库表
func InitAllTables() error {
	_, err := DB.Exec(CreateAllTablesSQL)
	return err
}

// DropAllTables 删除所有数据库表
func DropAllTables() error {
	_, err := DB.Exec(DropAllTablesSQL)
	return err
}
