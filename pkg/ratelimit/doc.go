// Package ratelimit はクライアントIP単位の固定ウィンドウ方式によるアドミッション制御を提供する。
//
// カウンタはStoreインターフェースの背後に置かれ、プロセス内のMemoryStoreと、
// 複数レプリカで共有するためのRedisStoreを差し替えて使用できる。
// ウィンドウは開始から所定の時間が経過した時点で一括してリセットされる（スライディングではない）。
package ratelimit
